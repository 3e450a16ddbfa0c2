package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/inlandnav/euris-resources/internal/domain"
	"github.com/inlandnav/euris-resources/internal/reporting"
)

// flexInt accepts numbers, numeric strings and null. VisuRIS is not
// consistent about which one it sends.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	raw := string(bytes.Trim(data, `"`))
	if raw == "" {
		*f = 0
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", string(data), err)
	}
	*f = flexInt(value)
	return nil
}

type lockResponse struct {
	CompactLock *struct {
		ObjectName   string `json:"objectName"`
		Locode       string `json:"locode"`
		ContactPhone string `json:"contactPhone"`
		FairwayName  string `json:"fairwayName"`
	} `json:"compactLock2"`
	Sublocks []struct {
		HeightDiffCm flexInt `json:"clHeight"`
		LengthCm     flexInt `json:"mlengthcm"`
		WidthCm      flexInt `json:"mwidthcm"`
	} `json:"sublocks"`
}

type bridgeResponse struct {
	Feature *struct {
		ObjectName   string  `json:"objectname"`
		Locode       string  `json:"locode"`
		FairwayName  string  `json:"rT_NAME"`
		WaterwayName string  `json:"wW_NAME"`
		Hectometre   flexInt `json:"hectom"`
		HeightCm     flexInt `json:"height"`
		WidthCm      flexInt `json:"mwidthcm"`
	} `json:"feature"`
}

type berthResponse struct {
	CompactBerth *struct {
		ObjectName  string  `json:"objectname"`
		Locode      string  `json:"locode"`
		FairwayName string  `json:"rT_NAME"`
		Hectometre  flexInt `json:"hectom"`
		LengthCm    flexInt `json:"mlengthcm"`
		Category    string  `json:"berthCategory"`
	} `json:"compactBerth2"`
}

type textNode struct {
	Text string `json:"_text"`
}

type noticeResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	MessageType string   `json:"messageTypeMessage"`
	Originator  string   `json:"originator"`
	DateIssue   string   `json:"dateIssue"`
	DateStart   string   `json:"dateStart"`
	DateEnd     string   `json:"dateEnd"`
	SectionIDs  []string `json:"sectionIds"`
	XML         struct {
		RISMessage struct {
			FTM struct {
				Contents      textNode `json:"contents"`
				Communication []struct {
					Number textNode `json:"number"`
					Label  textNode `json:"label"`
				} `json:"communication"`
			} `json:"ftm"`
		} `json:"RIS_Message"`
	} `json:"xml"`
}

// Details fetches the detail record of one entity.
func (c *Client) Details(ctx context.Context, kind domain.SourceKind, id string) (domain.Details, error) {
	l, err := layerFor(kind)
	if err != nil {
		return nil, err
	}

	data, err := c.get(ctx, l.detailPath, url.Values{l.detailParam: {id}})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s details for %s: %w", kind, id, err)
	}

	details, err := c.detailsFromResponse(kind, id, data)
	if err != nil {
		err := fmt.Errorf("failed to get %s details for %s: %w", kind, id, err)
		reporting.Report(ctx, err, map[string]string{
			"data": string(data),
		})
		return nil, err
	}
	return details, nil
}

func (c *Client) detailsFromResponse(kind domain.SourceKind, id string, data []byte) (domain.Details, error) {
	switch kind {
	case domain.KindLock:
		var response lockResponse
		if err := json.Unmarshal(data, &response); err != nil {
			return nil, fmt.Errorf("failed to parse lock response: %w", err)
		}
		if response.CompactLock == nil {
			return genericDetails(kind, id, data), nil
		}
		chambers := make([]domain.LockChamber, 0, len(response.Sublocks))
		for _, sublock := range response.Sublocks {
			chambers = append(chambers, domain.LockChamber{
				LengthCm:     int(sublock.LengthCm),
				WidthCm:      int(sublock.WidthCm),
				HeightDiffCm: int(sublock.HeightDiffCm),
			})
		}
		return domain.LockDetails{
			Code:         orDefault(response.CompactLock.Locode, id),
			Name:         response.CompactLock.ObjectName,
			ContactPhone: response.CompactLock.ContactPhone,
			FairwayName:  response.CompactLock.FairwayName,
			Chambers:     chambers,
		}, nil

	case domain.KindBridge:
		var response bridgeResponse
		if err := json.Unmarshal(data, &response); err != nil {
			return nil, fmt.Errorf("failed to parse bridge response: %w", err)
		}
		if response.Feature == nil {
			return genericDetails(kind, id, data), nil
		}
		return domain.BridgeDetails{
			Code:         orDefault(response.Feature.Locode, id),
			Name:         response.Feature.ObjectName,
			FairwayName:  response.Feature.FairwayName,
			WaterwayName: response.Feature.WaterwayName,
			Hectometre:   int(response.Feature.Hectometre),
			HeightCm:     int(response.Feature.HeightCm),
			WidthCm:      int(response.Feature.WidthCm),
		}, nil

	case domain.KindBerth:
		var response berthResponse
		if err := json.Unmarshal(data, &response); err != nil {
			return nil, fmt.Errorf("failed to parse berth response: %w", err)
		}
		if response.CompactBerth == nil {
			return genericDetails(kind, id, data), nil
		}
		return domain.BerthDetails{
			Code:        orDefault(response.CompactBerth.Locode, id),
			Name:        response.CompactBerth.ObjectName,
			FairwayName: response.CompactBerth.FairwayName,
			Hectometre:  int(response.CompactBerth.Hectometre),
			LengthCm:    int(response.CompactBerth.LengthCm),
			Category:    response.CompactBerth.Category,
		}, nil

	case domain.KindNotice:
		var response noticeResponse
		if err := json.Unmarshal(data, &response); err != nil {
			return nil, fmt.Errorf("failed to parse notice response: %w", err)
		}
		if response.ID == "" {
			response.ID = id
		}
		notice, err := c.noticeFromResponse(response)
		if err != nil {
			return nil, err
		}
		return domain.NoticeDetails{
			Notice:     notice,
			SectionIDs: response.SectionIDs,
		}, nil
	}

	return nil, fmt.Errorf("%w: no details decoder for %q", domain.ErrNotFound, kind)
}

func (c *Client) noticeFromResponse(response noticeResponse) (domain.NoticeToSkippers, error) {
	issued, err := c.parseTime(response.DateIssue)
	if err != nil {
		return domain.NoticeToSkippers{}, fmt.Errorf("notice %s: %w", response.ID, err)
	}
	validFrom, err := c.parseTime(response.DateStart)
	if err != nil {
		return domain.NoticeToSkippers{}, fmt.Errorf("notice %s: %w", response.ID, err)
	}
	validTo, err := c.parseTime(response.DateEnd)
	if err != nil {
		return domain.NoticeToSkippers{}, fmt.Errorf("notice %s: %w", response.ID, err)
	}

	ftm := response.XML.RISMessage.FTM
	links := make([]domain.Link, 0, len(ftm.Communication))
	for _, communication := range ftm.Communication {
		links = append(links, domain.Link{
			Label: communication.Label.Text,
			URL:   communication.Number.Text,
		})
	}

	return domain.NoticeToSkippers{
		ID:          response.ID,
		Title:       response.Title,
		MessageType: response.MessageType,
		Originator:  response.Originator,
		Contents:    strings.TrimSpace(ftm.Contents.Text),
		Issued:      issued,
		ValidFrom:   validFrom,
		ValidTo:     validTo,
		Links:       links,
	}, nil
}

// genericDetails keeps the top level scalar fields of a record we could not
// decode into its specific shape.
func genericDetails(kind domain.SourceKind, id string, data []byte) domain.GenericRisDetails {
	details := domain.GenericRisDetails{
		SourceKind: kind,
		Code:       id,
		Attributes: make(map[string]string),
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return details
	}
	for key, value := range raw {
		switch value.(type) {
		case string, float64, bool:
			details.Attributes[key] = attributeString(raw, key)
		}
	}
	for _, nameKey := range []string{"objectName", "objectname", "name"} {
		if name := details.Attributes[nameKey]; name != "" {
			details.Name = name
			break
		}
	}
	return details
}

func orDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
