package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// Attribute keys marking the translation state of a content node.
const (
	// ContentIdKey marks a node as translatable content.
	ContentIdKey = "data-content-id"
	// TranslationIdKey identifies an inserted translated node.
	TranslationIdKey = "data-translation-id"
	// TranslationByIdKey links a source node to its translation.
	TranslationByIdKey = "data-translated-by"
)

// GenerateContentID derives a stable identifier from node content.
func GenerateContentID(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}
