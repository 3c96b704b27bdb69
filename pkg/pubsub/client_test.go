package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/licensing-backend/pkg/config"
)

type stubAdmin struct {
	errs    map[string]error
	checked []string
}

func (s *stubAdmin) GetTopic(_ context.Context, name string) error {
	s.checked = append(s.checked, name)
	return s.errs[name]
}

func TestTopicPath(t *testing.T) {
	c := newClient("licensing-prod", nil, nil)
	cases := map[string]string{
		"license-events":                       "projects/licensing-prod/topics/license-events",
		" subscription-events ":                "projects/licensing-prod/topics/subscription-events",
		"projects/other/topics/license-events": "projects/other/topics/license-events",
		"":                                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, c.topicPath(in), in)
	}
	assert.Empty(t, newClient("", nil, nil).topicPath("license-events"))
}

func TestPingChecksEveryTopic(t *testing.T) {
	admin := &stubAdmin{}
	c := newClient("p", config.PubSubConfig{LicenseTopic: "license-events", SubscriptionTopic: "subscription-events"}.Topics(), admin)

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, []string{
		"projects/p/topics/license-events",
		"projects/p/topics/subscription-events",
	}, admin.checked)
}

func TestPingReportsMissingTopic(t *testing.T) {
	admin := &stubAdmin{errs: map[string]error{
		"projects/p/topics/subscription-events": status.Error(codes.NotFound, "gone"),
	}}
	c := newClient("p", []string{"license-events", "subscription-events"}, admin)

	err := c.Ping(context.Background())
	assert.EqualError(t, err, `topic "subscription-events" does not exist`)
}

func TestPingWrapsTransportError(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	admin := &stubAdmin{errs: map[string]error{"projects/p/topics/license-events": cause}}
	c := newClient("p", []string{"license-events"}, admin)

	assert.ErrorIs(t, c.Ping(context.Background()), cause)
}

func TestPingWithoutTopicsOrConnection(t *testing.T) {
	assert.ErrorIs(t, newClient("p", nil, &stubAdmin{}).Ping(context.Background()), errNoTopics)

	var nilClient *Client
	assert.ErrorIs(t, nilClient.Ping(context.Background()), errNotConnected)
	assert.Nil(t, nilClient.Publisher("license-events"))
	assert.NoError(t, nilClient.Close())
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	assert.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/secrets/sa.json"}), 1)
	assert.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "  "}, config.PubSubConfig{}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}
