package domain

import "time"

type OperatingTime struct {
	Start      time.Time
	End        time.Time
	Status     string
	Remarks    []string
	Directions []string
}

// Schedule holds the operating times of one object for one day.
type Schedule struct {
	ObjectID       string
	Day            time.Time
	OperatingTimes []OperatingTime
}

type Link struct {
	Label string
	URL   string
}

type NoticeToSkippers struct {
	ID          string
	Title       string
	MessageType string
	Originator  string
	Contents    string
	Issued      time.Time
	ValidFrom   time.Time
	ValidTo     time.Time
	Links       []Link
}

// Notices are the active notices to skippers for one object.
type Notices []NoticeToSkippers
