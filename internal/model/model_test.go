package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyValid(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want bool
	}{
		{"twitter key without domain", Key{Source: SourceTwitter, RemoteID: "100"}, true},
		{"mastodon key with domain", Key{Source: SourceMastodon, Domain: "hachyderm.io", RemoteID: "20"}, true},
		{"missing remote id", Key{Source: SourceTwitter}, false},
		{"missing source", Key{RemoteID: "100"}, false},
		{"zero key", Key{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Valid())
		})
	}
}

func TestKeyString_KeepsEmptyDomainSegment(t *testing.T) {
	assert.Equal(t, "twitter//100", Key{Source: SourceTwitter, RemoteID: "100"}.String())
	assert.Equal(t, "mastodon/hachyderm.io/20",
		Key{Source: SourceMastodon, Domain: "hachyderm.io", RemoteID: "20"}.String())
}

func TestViewerFlags_ZeroForUnknownViewer(t *testing.T) {
	var a Account
	assert.Equal(t, AccountFlags{}, a.ViewerFlags("twitter//nobody"))

	a.SetViewerFlags("twitter//viewer-1", AccountFlags{Following: true})
	assert.True(t, a.ViewerFlags("twitter//viewer-1").Following)
	assert.False(t, a.ViewerFlags("twitter//viewer-2").Following)
}

func TestPollOption_LookupByPosition(t *testing.T) {
	p := Poll{Options: []PollOption{
		{Position: 0, Label: "yes", VoteCount: 5},
		{Position: 2, Label: "maybe", VoteCount: 1},
	}}

	got, ok := p.Option(2)
	assert.True(t, ok)
	assert.Equal(t, "maybe", got.Label)

	_, ok = p.Option(1)
	assert.False(t, ok)
}
