package domain

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func intPtr(v int) *int { return &v }

func TestCampaignAutoresponderSendAt(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 42, 0, 0, time.UTC)

	c := Campaign{Type: CampaignTypeAutoresponder}
	if got := c.AutoresponderSendAt(now); !got.Equal(now) {
		t.Fatalf("AutoresponderSendAt() = %v, want now", got)
	}

	c.Option.AutoresponderTimeMinHour = intPtr(18)
	c.Option.AutoresponderTimeMinMinute = intPtr(30)
	if want := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC); !c.AutoresponderSendAt(now).Equal(want) {
		t.Fatalf("AutoresponderSendAt() = %v, want %v", c.AutoresponderSendAt(now), want)
	}

	c.Option.AutoresponderTimeMinMinute = nil
	if want := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC); !c.AutoresponderSendAt(now).Equal(want) {
		t.Fatalf("AutoresponderSendAt() = %v, want %v", c.AutoresponderSendAt(now), want)
	}

	c.Option.AutoresponderTimeMinHour = intPtr(31)
	if got := c.AutoresponderSendAt(now); !got.Equal(now) {
		t.Fatalf("AutoresponderSendAt() with invalid hour = %v, want now", got)
	}
}

func TestCampaignQueueKind(t *testing.T) {
	t.Parallel()

	if got := (Campaign{Type: CampaignTypeRegular}).QueueKind(); got != QueueKindRegular {
		t.Fatalf("QueueKind() = %s, want regular", got)
	}
	if got := (Campaign{Type: CampaignTypeAutoresponder}).QueueKind(); got != QueueKindAutoresponder {
		t.Fatalf("QueueKind() = %s, want autoresponder", got)
	}
}

func TestCampaignValidate(t *testing.T) {
	t.Parallel()

	valid := Campaign{ID: 1, Type: CampaignTypeRegular}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	invalid := []Campaign{
		{Type: CampaignTypeRegular},
		{ID: 1, Type: CampaignType("rss")},
		{ID: 1, Type: CampaignTypeRegular, Option: CampaignOption{MaxSendCount: -1}},
		{ID: 1, Type: CampaignTypeRegular, Option: CampaignOption{Timewarp: &Timewarp{Hour: 25}}},
	}
	for _, c := range invalid {
		if err := c.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("Validate(%+v) error = %v, want ErrValidation", c, err)
		}
	}
}

func TestOpenUnopenFilterAllows(t *testing.T) {
	t.Parallel()

	var none *OpenUnopenFilter
	if !none.Allows(false) {
		t.Fatal("nil filter should allow everyone")
	}

	open := &OpenUnopenFilter{Action: OpenUnopenActionOpen, CampaignIDs: []int64{1}}
	if !open.Allows(true) || open.Allows(false) {
		t.Fatal("open filter should allow only openers")
	}

	unopen := &OpenUnopenFilter{Action: OpenUnopenActionUnopen, CampaignIDs: []int64{1}}
	if unopen.Allows(true) || !unopen.Allows(false) {
		t.Fatal("unopen filter should allow only non-openers")
	}

	empty := &OpenUnopenFilter{Action: OpenUnopenActionOpen}
	if empty.Active() || !empty.Allows(false) {
		t.Fatal("filter without campaigns should be inactive")
	}
}

func TestParseOpenUnopenAction(t *testing.T) {
	t.Parallel()

	got, err := ParseOpenUnopenAction(" UNOPEN ")
	if err != nil {
		t.Fatalf("ParseOpenUnopenAction() unexpected error = %v", err)
	}
	if got != OpenUnopenActionUnopen {
		t.Fatalf("ParseOpenUnopenAction() = %s, want unopen", got)
	}
	if _, err := ParseOpenUnopenAction("click"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseOpenUnopenAction() error = %v, want ErrValidation", err)
	}
}

func TestTimewarpDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tw := Timewarp{Hour: 9, Minute: 0}

	if tw.Due(now, "UTC") {
		t.Fatal("08:00 UTC should not be due for 09:00")
	}
	if !tw.Due(now, "Europe/Istanbul") {
		t.Fatal("11:00 Istanbul should be due for 09:00")
	}
	if tw.Due(now, "America/New_York") {
		t.Fatal("03:00 New York should not be due for 09:00")
	}
	if tw.Due(now, "Not/AZone") {
		t.Fatal("unknown timezone should fall back to now's location")
	}
}
