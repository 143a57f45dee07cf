package campaign

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Job is the re-dispatch payload placed on the dispatch queue once a
// shipping row is confirmed.
type Job struct {
	ID                 string `json:"id"`
	TenantID           int64  `json:"tenantId"`
	CampaignShippingID int64  `json:"campaignShippingId"`
	CampaignID         int64  `json:"campaignId"`
	Attempt            int    `json:"attempt"`
}

func encodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}

	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("campaign: failed to encode job: %w", err)
	}
	return job, string(body), nil
}
