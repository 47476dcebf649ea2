/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package reportclient

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/railreport/reportqueue/queue"
)

// MsgAuthCredentialsRequired is the failure message for payloads without upstream credentials.
const MsgAuthCredentialsRequired = "AUTH_CREDENTIALS_REQUIRED"

const apiDateLayout = "2006-01-02"

// Journey dates are accepted in the API format and in the format used by the web form.
var journeyDateLayouts = []string{apiDateLayout, "02-Jan-2006"}

// "Some Express (1234)" -> "1234"
var trainNumberRe = regexp.MustCompile(`\((\d+)\)\s*$`)

// ReportRequest is the payload of a report request.
type ReportRequest struct {
	TrainModel  string `mapstructure:"trainModel" json:"trainModel"`
	JourneyDate string `mapstructure:"journeyDate" json:"journeyDate"`
	AuthToken   string `mapstructure:"authToken" json:"authToken"`
	DeviceKey   string `mapstructure:"deviceKey" json:"deviceKey"`
}

// DecodeReportRequest decodes and validates the opaque queue payload.
// Validation problems are returned as *queue.Failure of kind invalid_payload.
func DecodeReportRequest(payload queue.Payload) (ReportRequest, error) {
	var req ReportRequest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &req, TagName: "mapstructure"})
	if err != nil {
		return ReportRequest{}, fmt.Errorf("create payload decoder: %w", err)
	}
	if err = dec.Decode(map[string]interface{}(payload)); err != nil {
		return ReportRequest{}, queue.NewInvalidPayload(fmt.Sprintf("malformed payload: %v", err))
	}

	req.TrainModel = strings.TrimSpace(req.TrainModel)
	req.JourneyDate = strings.TrimSpace(req.JourneyDate)
	if req.TrainModel == "" || req.JourneyDate == "" {
		return ReportRequest{}, queue.NewInvalidPayload("Missing or empty train model or date")
	}
	if req.AuthToken == "" || req.DeviceKey == "" {
		return ReportRequest{}, queue.NewInvalidPayload(MsgAuthCredentialsRequired)
	}
	date, ok := parseJourneyDate(req.JourneyDate)
	if !ok {
		return ReportRequest{}, queue.NewInvalidPayload("Invalid date format")
	}
	req.JourneyDate = date.Format(apiDateLayout)
	return req, nil
}

func parseJourneyDate(s string) (time.Time, bool) {
	for _, layout := range journeyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TrainNumber returns the number in trailing parentheses of the train model, or the model itself.
func (r ReportRequest) TrainNumber() string {
	if m := trainNumberRe.FindStringSubmatch(r.TrainModel); m != nil {
		return m[1]
	}
	return strings.TrimSpace(strings.Split(r.TrainModel, "(")[0])
}

// cacheKey identifies the report generated with the caller's credentials.
// Reports are never shared between different credentials.
func (r ReportRequest) cacheKey() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{r.AuthToken, r.DeviceKey, r.TrainNumber(), r.JourneyDate}, "\x00")))
	return hex.EncodeToString(sum[:])
}
