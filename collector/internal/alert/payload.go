// Package alert builds the Slack Block Kit message announcing unusual
// records in a batch.
package alert

import (
	"errors"
	"time"

	"github.com/telhawk-systems/logship/common/syslog"
)

// SentAtLayout formats the batch timestamp in the alert header.
const SentAtLayout = "01/02/2006, 15:04:05"

var ErrNoUnusualRecords = errors.New("alert: no unusual records")

// Payload is a Block Kit message. It marshals to the JSON body of a Slack
// incoming webhook.
type Payload struct {
	Text   string  `json:"text,omitempty"`
	Blocks []Block `json:"blocks"`

	// Routing data, not part of the webhook body.
	DeviceID string          `json:"-"`
	SentAt   time.Time       `json:"-"`
	Records  []syslog.Record `json:"-"`
}

type Block struct {
	Type     string        `json:"type"`
	Elements []RichElement `json:"elements,omitempty"`
	Fields   []TextObject  `json:"fields,omitempty"`
}

// RichElement is a rich_text container or leaf element.
type RichElement struct {
	Type     string        `json:"type"`
	Elements []RichElement `json:"elements,omitempty"`
	Text     string        `json:"text,omitempty"`
	Name     string        `json:"name,omitempty"`
	Unicode  string        `json:"unicode,omitempty"`
	Style    *TextStyle    `json:"style,omitempty"`
}

type TextStyle struct {
	Bold bool `json:"bold,omitempty"`
}

type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Summary is the plain-text line used as the header and as the
// notification fallback text.
const Summary = "Unusual log records detected.\n"

// Build returns the alert for unusual. The header names the device and the
// batch send time; each record gets a section with its severity, process,
// facility, timestamp and message, framed by dividers. unusual is not
// modified.
func Build(deviceID string, ts time.Time, unusual []syslog.Record) (*Payload, error) {
	if len(unusual) == 0 {
		return nil, ErrNoUnusualRecords
	}

	records := make([]syslog.Record, len(unusual))
	copy(records, unusual)

	p := &Payload{
		Text:     Summary + "Device: " + deviceID,
		DeviceID: deviceID,
		SentAt:   ts,
		Records:  records,
		Blocks:   make([]Block, 0, 1+3*len(records)),
	}
	p.Blocks = append(p.Blocks, header(deviceID, ts))

	for _, rec := range records {
		p.Blocks = append(p.Blocks,
			Block{Type: "divider"},
			recordSection(rec),
			Block{Type: "divider"},
		)
	}

	return p, nil
}

func header(deviceID string, ts time.Time) Block {
	bold := &TextStyle{Bold: true}
	return Block{
		Type: "rich_text",
		Elements: []RichElement{
			{
				Type: "rich_text_section",
				Elements: []RichElement{
					{Type: "emoji", Name: "rotating_light", Unicode: "1f6a8"},
					{Type: "text", Text: Summary},
				},
			},
			{
				Type: "rich_text_quote",
				Elements: []RichElement{
					{Type: "text", Text: "Device: ", Style: bold},
					{Type: "text", Text: deviceID + "\n"},
					{Type: "text", Text: "Sent at: ", Style: bold},
					{Type: "text", Text: ts.Format(SentAtLayout)},
				},
			},
		},
	}
}

func recordSection(rec syslog.Record) Block {
	return Block{
		Type: "section",
		Fields: []TextObject{
			field("Log Level", rec.Severity.String()),
			field("Process", rec.Process),
			field("Facility", rec.Facility),
			field("Timestamp", rec.TimestampText),
			field("Message", rec.Message),
		},
	}
}

func field(label, value string) TextObject {
	return TextObject{Type: "mrkdwn", Text: "*" + label + ":*\n" + value}
}
