package policy

import "fmt"

// Attachment limits enforced before a ticket is allowed to exist.
const (
	MaxAttachmentCount    = 5
	MaxAttachmentBytes    = 2 * 1024 * 1024 // per file
	MaxAttachmentSetBytes = 8 * 1024 * 1024 // whole set
)

// AttachmentViolationCode identifies why a candidate file set was rejected.
type AttachmentViolationCode string

const (
	TooManyAttachments    AttachmentViolationCode = "TOO_MANY_ATTACHMENTS"
	AttachmentTooLarge    AttachmentViolationCode = "ATTACHMENT_TOO_LARGE"
	AttachmentSetTooLarge AttachmentViolationCode = "ATTACHMENT_SET_TOO_LARGE"
)

// FileCandidate describes one file of a candidate attachment set.
type FileCandidate struct {
	Name string
	Size int64
}

// AttachmentViolation reports the first limit a candidate set breaks.
// FileName and FileIndex identify the offending file for per-file limits.
type AttachmentViolation struct {
	Code      AttachmentViolationCode
	FileName  string
	FileIndex int
}

func (v *AttachmentViolation) Error() string {
	switch v.Code {
	case TooManyAttachments:
		return fmt.Sprintf("too many attachments (max %d)", MaxAttachmentCount)
	case AttachmentTooLarge:
		return fmt.Sprintf("attachment %q exceeds %d bytes", v.FileName, MaxAttachmentBytes)
	case AttachmentSetTooLarge:
		return fmt.Sprintf("attachments exceed %d bytes combined", MaxAttachmentSetBytes)
	}
	return string(v.Code)
}

// ValidateAttachments checks a candidate file set against the limits, in
// order: count, per-file size, total size. It stops at the first violation
// and has no side effects; creation must be all-or-nothing, so callers run
// this before any entity or blob is written.
func ValidateAttachments(files []FileCandidate) *AttachmentViolation {
	if len(files) > MaxAttachmentCount {
		return &AttachmentViolation{Code: TooManyAttachments}
	}
	for i, f := range files {
		if f.Size > MaxAttachmentBytes {
			return &AttachmentViolation{Code: AttachmentTooLarge, FileName: f.Name, FileIndex: i}
		}
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	if total > MaxAttachmentSetBytes {
		return &AttachmentViolation{Code: AttachmentSetTooLarge}
	}
	return nil
}
