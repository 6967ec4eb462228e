package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

func files(sizes ...int64) []FileCandidate {
	out := make([]FileCandidate, len(sizes))
	for i, size := range sizes {
		out[i] = FileCandidate{Name: "file-" + string(rune('a'+i)) + ".jpg", Size: size}
	}
	return out
}

func TestValidateAttachmentsAccepts(t *testing.T) {
	assert.Nil(t, ValidateAttachments(nil))
	assert.Nil(t, ValidateAttachments(files(1)))
	// five 1 MiB files: within count, per-file, and total limits
	assert.Nil(t, ValidateAttachments(files(mib, mib, mib, mib, mib)))
	// exact boundaries are allowed
	assert.Nil(t, ValidateAttachments(files(2*mib, 2*mib, 2*mib, 2*mib)))
}

func TestValidateAttachmentsCount(t *testing.T) {
	violation := ValidateAttachments(files(1, 1, 1, 1, 1, 1))
	require.NotNil(t, violation)
	assert.Equal(t, TooManyAttachments, violation.Code)
}

func TestValidateAttachmentsPerFile(t *testing.T) {
	violation := ValidateAttachments(files(mib, 2*mib+1, mib))
	require.NotNil(t, violation)
	assert.Equal(t, AttachmentTooLarge, violation.Code)
	assert.Equal(t, 1, violation.FileIndex)
	assert.Equal(t, "file-b.jpg", violation.FileName)
}

func TestValidateAttachmentsTotal(t *testing.T) {
	violation := ValidateAttachments(files(2*mib, 2*mib, 2*mib, 2*mib, 1))
	require.NotNil(t, violation)
	assert.Equal(t, AttachmentSetTooLarge, violation.Code)
}

func TestValidateAttachmentsOrderOfChecks(t *testing.T) {
	// six oversized files: the count limit is evaluated first
	violation := ValidateAttachments(files(3*mib, 3*mib, 3*mib, 3*mib, 3*mib, 3*mib))
	require.NotNil(t, violation)
	assert.Equal(t, TooManyAttachments, violation.Code)
}
