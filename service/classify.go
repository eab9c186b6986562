package service

import (
	"strings"

	"caselens-backend/models"
)

const classifyPrefixRunes = 400

// documentKeywords is checked in order; the first matching entry wins.
// Execution and appeal come first since those filings quote the judgment, and a defense
// quotes the complaint it answers.
var documentKeywords = []struct {
	docType  models.DocumentType
	keywords []string
}{
	{models.DocTypeExecution, []string{"强制执行申请", "执行申请", "申请执行", "execution application", "enforcement application"}},
	{models.DocTypeAppeal, []string{"上诉状", "上诉", "appeal"}},
	{models.DocTypeAward, []string{"裁决书", "仲裁裁决", "arbitral award", "arbitration award"}},
	{models.DocTypeJudgment, []string{"判决书", "裁定书", "民事判决", "judgment", "judgement", "ruling"}},
	{models.DocTypeDefense, []string{"答辩状", "答辩", "statement of defense", "statement of defence", "defense", "defence"}},
	{models.DocTypeApplication, []string{"仲裁申请", "arbitration application", "request for arbitration"}},
	{models.DocTypeComplaint, []string{"起诉状", "民事起诉", "complaint", "statement of claim"}},
	{models.DocTypeEvidence, []string{"证据", "evidence", "exhibit"}},
	{models.DocTypeContract, []string{"合同", "协议", "contract", "agreement"}},
}

// ClassifyDocument determines the document type from the filename first,
// then from the opening of the text. Unmatched documents are "other".
func ClassifyDocument(filename, text string) models.DocumentType {
	if docType, ok := matchDocumentType(filename); ok {
		return docType
	}
	if docType, ok := matchDocumentType(firstRunes(text, classifyPrefixRunes)); ok {
		return docType
	}
	return models.DocTypeOther
}

func matchDocumentType(s string) (models.DocumentType, bool) {
	s = strings.ToLower(s)
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	for _, entry := range documentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(s, kw) {
				return entry.docType, true
			}
		}
	}
	return "", false
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
