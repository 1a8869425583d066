package importer

import "github.com/Ramsey-B/fern/pkg/models"

// TargetStatus applies the publish policy to a content type and returns
// the status materialized content should get. The second return is false
// when the record should stay staged instead of materializing.
// Always-publish types override the policy, including import-only.
func TargetStatus(policy string, alwaysPublishTypes []string, contentType string) (string, bool) {
	for _, t := range alwaysPublishTypes {
		if t == contentType {
			return models.ContentStatusPublish, true
		}
	}

	switch policy {
	case models.PublishPolicyPublish:
		return models.ContentStatusPublish, true
	case models.PublishPolicyDraft:
		return models.ContentStatusDraft, true
	default:
		return "", false
	}
}
