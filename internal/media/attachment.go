package media

import (
	"github.com/h2non/filetype"

	"parley/internal/models"
)

// DetectAttachmentType sniffs the payload and classifies the message it
// will ride on: recognized images become image messages, everything else a
// generic file. Returns the detected MIME type alongside.
func DetectAttachmentType(data []byte) (models.MessageType, string) {
	if filetype.IsImage(data) {
		if kind, err := filetype.Match(data); err == nil {
			return models.MessageTypeImage, kind.MIME.Value
		}
		return models.MessageTypeImage, "application/octet-stream"
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return models.MessageTypeFile, "application/octet-stream"
	}
	return models.MessageTypeFile, kind.MIME.Value
}
