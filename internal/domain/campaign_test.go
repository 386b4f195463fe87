package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to CampaignStatus
		want     bool
	}{
		{CampaignDraft, CampaignSending, true},
		{CampaignSending, CampaignSent, true},
		{CampaignSending, CampaignDraft, true},
		{CampaignDraft, CampaignSent, false},
		{CampaignSent, CampaignDraft, false},
		{CampaignSent, CampaignSending, false},
		{CampaignPaused, CampaignSending, false},
		{CampaignSending, CampaignPaused, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCampaignGuards(t *testing.T) {
	c := &Campaign{Status: CampaignDraft}
	if !c.IsEditable() || !c.IsDeletable() {
		t.Fatal("draft campaign must be editable and deletable")
	}
	c.Status = CampaignSending
	if c.IsEditable() || c.IsDeletable() {
		t.Fatal("sending campaign must be neither editable nor deletable")
	}
	c.Status = CampaignSent
	if c.IsEditable() {
		t.Fatal("sent campaign must not be editable")
	}
	if !c.IsDeletable() {
		t.Fatal("sent campaign may be deleted")
	}
}

func TestTransportSettings(t *testing.T) {
	s := TransportSettings{Host: "smtp.example.com", Username: "u", Password: "p"}
	if !s.Configured() {
		t.Fatal("expected configured")
	}
	if s.EffectivePort() != 587 || s.ImplicitTLS() {
		t.Fatalf("unexpected port handling: %d %v", s.EffectivePort(), s.ImplicitTLS())
	}
	s.Port = 465
	if !s.ImplicitTLS() {
		t.Fatal("port 465 should use implicit TLS")
	}
	if s.Sender() != "u" {
		t.Fatalf("Sender() = %q", s.Sender())
	}
	if (TransportSettings{Host: "h"}).Configured() {
		t.Fatal("missing credentials must not be configured")
	}
}
