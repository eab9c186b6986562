package service

import (
	"fmt"

	"caselens-backend/models"
)

// InferRelationships derives document relationships from document-type pairs.
// The result depends only on the input order, never on extraction timing.
func InferRelationships(analyses []models.DocumentAnalysis) []models.DocumentRelationship {
	relationships := []models.DocumentRelationship{}
	for i, from := range analyses {
		for j, to := range analyses {
			if i == j {
				continue
			}
			relation, reasoning, ok := relate(from, to)
			if !ok {
				continue
			}
			relationships = append(relationships, models.DocumentRelationship{
				FromDoc:      from.DocumentID,
				ToDoc:        to.DocumentID,
				RelationType: relation,
				Reasoning:    reasoning,
			})
		}
	}
	return relationships
}

func relate(from, to models.DocumentAnalysis) (string, string, bool) {
	switch {
	case from.DocumentType == models.DocTypeExecution && to.DocumentType.IsRuling():
		return models.RelationEnforces, fmt.Sprintf("%s seeks enforcement of %s", label(from), label(to)), true
	case from.DocumentType.IsRuling() && to.DocumentType.IsFiling():
		return models.RelationRulingOn, fmt.Sprintf("%s decides the claims raised in %s", label(from), label(to)), true
	case from.DocumentType == models.DocTypeEvidence && to.DocumentType.IsFiling():
		return models.RelationSupports, fmt.Sprintf("%s is offered in support of %s", label(from), label(to)), true
	case from.DocumentType == models.DocTypeDefense && to.DocumentType.IsFiling():
		return models.RelationRefutes, fmt.Sprintf("%s answers the claims in %s", label(from), label(to)), true
	}
	return "", "", false
}

func label(a models.DocumentAnalysis) string {
	name := a.Filename
	if name == "" {
		name = a.DocumentID
	}
	return fmt.Sprintf("%s (%s)", a.DocumentType.Label(), name)
}
