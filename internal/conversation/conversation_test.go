package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merakimarket/meraki/internal/apperr"
	"github.com/merakimarket/meraki/internal/realtime"
)

type published struct {
	eventType  realtime.EventType
	recipients []string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(t realtime.EventType, data any, recipients ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{eventType: t, recipients: recipients})
}

func TestSend_CreatesNormalizedConversation(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewService(NewMemoryStore(), pub)
	ctx := context.Background()

	first, err := svc.Send(ctx, "zoe", "adam", PlainBody{Text: "hello"})
	require.NoError(t, err)
	reply, err := svc.Send(ctx, "adam", "zoe", PlainBody{Text: "hi zoe"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, reply.ConversationID, "both directions share one conversation")

	convs, err := svc.ListConversations(ctx, "zoe", 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "adam", convs[0].ParticipantA)
	assert.Equal(t, "zoe", convs[0].ParticipantB)
	assert.Equal(t, reply.ID, convs[0].LastMessageID)

	require.Len(t, pub.events, 2)
	assert.Equal(t, realtime.EventMessageCreated, pub.events[0].eventType)
	assert.ElementsMatch(t, []string{"zoe", "adam"}, pub.events[0].recipients)
}

func TestSend_Validation(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := svc.Send(ctx, "alice", "alice", PlainBody{Text: "me"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Send(ctx, "alice", "bob", PlainBody{Text: "   "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Send(ctx, "alice", "", PlainBody{Text: "hi"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Send(ctx, "alice", "bob", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.PostTradeOffer(ctx, "alice", "bob", TradeOfferPayload{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPostTradeOffer_ResolvableByMessageID(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	msg, err := svc.PostTradeOffer(ctx, "buyer", "seller", TradeOfferPayload{
		OfferID: "off_1", ProductID: "prod_1", ProductTitle: "Guitar",
		OfferItemName: "Camera", OfferItemValue: 5000,
	})
	require.NoError(t, err)

	got, err := svc.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	body, ok := got.Body.(TradeOfferBody)
	require.True(t, ok)
	assert.Equal(t, "off_1", body.Offer.OfferID)

	_, err = svc.GetMessage(ctx, "msg_missing")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestListMessages_ParticipantsOnly(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	m1, _ := svc.Send(ctx, "alice", "bob", PlainBody{Text: "one"})
	_, _ = svc.Send(ctx, "bob", "alice", PlainBody{Text: "two"})
	_, _ = svc.PostSystemNotice(ctx, "alice", "bob", "Offer cancelled")

	msgs, err := svc.ListMessages(ctx, m1.ConversationID, "bob", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Body.Preview())
	assert.Equal(t, KindSystem, msgs[2].Body.Kind())

	latest, err := svc.ListMessages(ctx, m1.ConversationID, "alice", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "two", latest[0].Body.Preview())

	_, err = svc.ListMessages(ctx, m1.ConversationID, "mallory", 0)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
