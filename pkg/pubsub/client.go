package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/gcp"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

var errNotConnected = errors.New("pubsub: client not connected")

// Client hands out publishers for the domain and purchase topics and the
// subscriber for purchase events.
type Client struct {
	ps      *pubsub.Client
	project string
	cfg     config.PubSubConfig
}

// NewClient connects to Pub/Sub (or the emulator named by PUBSUB_EMULATOR_HOST)
// and checks both topics exist.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	if project == "" {
		return nil, errors.New("pubsub: gcp project id is required")
	}
	ps, err := pubsub.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{ps: ps, project: project, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"domain_topic":   cfg.DomainTopic,
		"purchase_topic": cfg.PurchaseTopic,
	}), "pubsub connected")
	return c, nil
}

// Ping checks the domain and purchase topics are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotConnected
	}
	for _, topic := range []string{c.cfg.DomainTopic, c.cfg.PurchaseTopic} {
		name := c.resource("topics", topic)
		if name == "" {
			return errors.New("pubsub: topic name is required")
		}
		_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		if err := describe("topic", topic, err); err != nil {
			return err
		}
	}
	return nil
}

// CheckSubscription fails unless the named subscription exists.
func (c *Client) CheckSubscription(ctx context.Context, name string) error {
	if c == nil || c.ps == nil {
		return errNotConnected
	}
	full := c.resource("subscriptions", name)
	if full == "" {
		return errors.New("pubsub: subscription name is required")
	}
	_, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	return describe("subscription", name, err)
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: %s %q does not exist", kind, name)
	default:
		return fmt.Errorf("pubsub: checking %s %q: %w", kind, name, err)
	}
}

// Publisher accepts a topic id or a full projects/*/topics/* name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	name := c.resource("topics", topic)
	if name == "" {
		return nil
	}
	return c.ps.Publisher(name)
}

func (c *Client) PurchasePublisher() *pubsub.Publisher { return c.Publisher(c.cfg.PurchaseTopic) }

// PurchaseSubscription is the subscriber the analytics worker drains.
func (c *Client) PurchaseSubscription() *pubsub.Subscriber {
	if c == nil || c.ps == nil {
		return nil
	}
	name := c.resource("subscriptions", c.cfg.PurchaseSubscription)
	if name == "" {
		return nil
	}
	return c.ps.Subscriber(name)
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// resource expands an id to projects/<project>/<kind>/<id>. Names that are
// already fully qualified pass through.
func (c *Client) resource(kind, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/") {
		return id
	}
	if c.project == "" {
		return ""
	}
	return "projects/" + c.project + "/" + kind + "/" + id
}
