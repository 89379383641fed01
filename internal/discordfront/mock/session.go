// Package mock provides test doubles for discordfront's interaction tests.
package mock

import "github.com/bwmarrin/discordgo"

// Responder records interaction responses for test assertions, satisfying
// discordfront.Responder without a live gateway connection.
type Responder struct {
	Responses []*discordgo.InteractionResponse
	FollowUps []*discordgo.WebhookParams
	Err       error
}

func (m *Responder) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.Responses = append(m.Responses, resp)
	return m.Err
}

func (m *Responder) FollowupMessageCreate(i *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// LastResponse returns the most recently recorded response, or nil.
func (m *Responder) LastResponse() *discordgo.InteractionResponse {
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}
