// Telegram Bot API adapter: implements the chat collaborator interfaces, and converts inbound updates into chat.Message.
package telegram

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/util/cliutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type Config struct {
	Token string
	// Bot API URL format; defaults to tgbotapi.APIEndpoint
	Endpoint string
	// long-poll timeout, in seconds
	PollTimeout int
	// HTTP timeout for update polling. Other requests are bound by their context.
	RequestTimeout time.Duration
	// how long admin lookups are cached
	AdminCacheTTL time.Duration
}

// Platform, RoleOracle, and Sender backed by the Telegram Bot API.
//
// With an empty token the client runs in dry mode: nothing is sent, every action succeeds, and Run blocks until cancelled.
type Client struct {
	api         *tgbotapi.BotAPI
	logger      *slog.Logger
	pollTimeout int
	dryRun      bool
	limits      *limiters
	admins      *expirable.LRU[string, bool]
}

var (
	_ chat.Platform   = (*Client)(nil)
	_ chat.RoleOracle = (*Client)(nil)
)

func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if config.AdminCacheTTL <= 0 {
		config.AdminCacheTTL = 5 * time.Minute
	}
	c := &Client{
		logger:      logger.With("component", "telegram"),
		pollTimeout: config.PollTimeout,
		limits:      newLimiters(),
		admins:      expirable.NewLRU[string, bool](10_000, nil, config.AdminCacheTTL),
	}

	token := strings.TrimSpace(config.Token)
	if token == "" {
		c.dryRun = true
		return c, nil
	}

	if config.Endpoint == "" {
		config.Endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, config.Endpoint, cliutil.NewHttpClient(config.RequestTimeout))
	if err != nil {
		return nil, err
	}
	c.api = api
	c.logger.Info("connected to telegram", "bot", api.Self.UserName)
	return c, nil
}

func (c *Client) DryRun() bool {
	return c.dryRun
}

// Long-polls for updates starting at offset (an update id; zero for whatever the server still holds), passing each convertible message to handler, until ctx is cancelled. Updates are handled one at a time, in order.
func (c *Client) Run(ctx context.Context, offset int, handler func(ctx context.Context, updateID int, msg *chat.Message)) error {
	if c.dryRun {
		c.logger.Warn("telegram token is empty, running in dry mode")
		<-ctx.Done()
		return nil
	}

	timeout := c.pollTimeout
	if timeout <= 0 {
		timeout = 30
	}

	updateConfig := tgbotapi.NewUpdate(offset)
	updateConfig.Timeout = timeout
	updateConfig.AllowedUpdates = []string{"message", "edited_message"}
	updates := c.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			updatesReceived.Inc()
			msg, ok := ConvertUpdate(update)
			if !ok {
				continue
			}
			handler(ctx, update.UpdateID, msg)
		}
	}
}

// Sends every request with a fixed context, so cancelling it aborts the HTTP call itself.
type ctxClient struct {
	ctx  context.Context
	base tgbotapi.HTTPClient
}

func (cc ctxClient) Do(req *http.Request) (*http.Response, error) {
	return cc.base.Do(req.WithContext(cc.ctx))
}

// Runs one Bot API request against a copy of the API handle bound to ctx. When ctx is done the in-flight HTTP request is aborted.
func (c *Client) request(ctx context.Context, method string, fn func(api *tgbotapi.BotAPI) error) error {
	if err := c.limits.global.Wait(ctx); err != nil {
		return err
	}
	api := *c.api
	api.Client = ctxClient{ctx: ctx, base: c.api.Client}

	start := time.Now()
	err := fn(&api)
	apiDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			apiRequests.WithLabelValues(method, "timeout").Inc()
			return ctx.Err()
		}
		apiRequests.WithLabelValues(method, "error").Inc()
		return translateError(err)
	}
	apiRequests.WithLabelValues(method, "ok").Inc()
	return nil
}
