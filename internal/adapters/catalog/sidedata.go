package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/reporting"
)

const (
	operatingTimesPath = "/visuris/api/OperationTimes/GetOperationTimes"
	objectNoticesPath  = "/visuris/api/NtsNotices/GetNoticesForObject"
)

type operatingTimeResponse struct {
	DateStart     string `json:"dateStart"`
	DateEnd       string `json:"dateEnd"`
	StatusMessage string `json:"statusMessage"`
	Remarks       []struct {
		Remark string `json:"remark"`
	} `json:"operationEventRemarks"`
	Directions []struct {
		FairwayDirectionCode string `json:"fairwayDirectionCode"`
	} `json:"operationEventTargetDirections"`
}

// Today is the start of the current day in the client's location.
func (c *Client) Today() time.Time {
	return c.today()
}

// OperatingTimes fetches the operating schedule of an object for one day.
func (c *Client) OperatingTimes(ctx context.Context, id string, day time.Time) (domain.Schedule, error) {
	params := url.Values{
		"isrs": {id},
		"date": {day.In(c.location).Format(time.DateOnly)},
	}

	data, err := c.get(ctx, operatingTimesPath, params)
	if errors.Is(err, domain.ErrNotFound) {
		// Objects without a published schedule answer with no content
		return domain.Schedule{ObjectID: id, Day: day}, nil
	}
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("failed to get operating times for %s: %w", id, err)
	}

	schedule, err := c.scheduleFromResponse(id, day, data)
	if err != nil {
		err := fmt.Errorf("failed to get operating times for %s: %w", id, err)
		reporting.Report(ctx, err, map[string]string{
			"data": string(data),
		})
		return domain.Schedule{}, err
	}
	return schedule, nil
}

func (c *Client) scheduleFromResponse(id string, day time.Time, data []byte) (domain.Schedule, error) {
	var response []operatingTimeResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return domain.Schedule{}, fmt.Errorf("failed to parse operating times: %w", err)
	}

	schedule := domain.Schedule{
		ObjectID:       id,
		Day:            day,
		OperatingTimes: make([]domain.OperatingTime, 0, len(response)),
	}
	for _, entry := range response {
		start, err := c.parseTime(entry.DateStart)
		if err != nil {
			return domain.Schedule{}, err
		}
		end, err := c.parseTime(entry.DateEnd)
		if err != nil {
			return domain.Schedule{}, err
		}

		operatingTime := domain.OperatingTime{
			Start:  start,
			End:    end,
			Status: entry.StatusMessage,
		}
		for _, remark := range entry.Remarks {
			operatingTime.Remarks = append(operatingTime.Remarks, remark.Remark)
		}
		for _, direction := range entry.Directions {
			operatingTime.Directions = append(operatingTime.Directions, direction.FairwayDirectionCode)
		}
		schedule.OperatingTimes = append(schedule.OperatingTimes, operatingTime)
	}
	return schedule, nil
}

// NoticesToSkippers fetches the notices that currently apply to an object.
func (c *Client) NoticesToSkippers(ctx context.Context, id string) (domain.Notices, error) {
	data, err := c.get(ctx, objectNoticesPath, url.Values{"isrs": {id}})
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Notices{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notices for %s: %w", id, err)
	}

	var response []noticeResponse
	if err := json.Unmarshal(data, &response); err != nil {
		err := fmt.Errorf("failed to parse notices for %s: %w", id, err)
		reporting.Report(ctx, err, map[string]string{
			"data": string(data),
		})
		return nil, err
	}

	notices := make(domain.Notices, 0, len(response))
	for _, entry := range response {
		notice, err := c.noticeFromResponse(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to get notices for %s: %w", id, err)
		}
		notices = append(notices, notice)
	}
	return notices, nil
}
