package orderlog

import "errors"

// ErrCompilationSkipped means the compiler found nothing worth logging. It
// is not a failure: Log turns it into a nil entry and a nil error.
var ErrCompilationSkipped = errors.New("orderlog: nothing to log")

// ErrRetentionViolation means eviction left more generic entries than the
// configured cap. The write is rolled back.
var ErrRetentionViolation = errors.New("orderlog: generic entries over retention cap")

// ErrNotificationFailed means the entry was persisted but its email could
// not be sent. The entry keeps Send=true with Sent unset so it can be retried.
var ErrNotificationFailed = errors.New("orderlog: notification not sent")

// ErrInvalidStatusTransition means the entry's status may not be written:
// an exclusive status already present, or a reserved status chosen manually.
var ErrInvalidStatusTransition = errors.New("orderlog: invalid status transition")
