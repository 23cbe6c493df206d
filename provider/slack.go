package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/devopsext/tracecore/common"
	"github.com/devopsext/utils"
)

type SlackOptions struct {
	WebHook string
	Tags    string
	Timeout int
}

type SlackEventer struct {
	options SlackOptions
	logger  common.Logger
	tags    []string
	client  *http.Client
	ctx     context.Context
}

type slackMessage struct {
	Text string `json:"text"`
}

func (se *SlackEventer) text(name string, attributes map[string]string, begin, end time.Time) string {

	var lines []string
	lines = append(lines, fmt.Sprintf("*%s*", name))

	var pairs []string
	for k, v := range attributes {
		pairs = append(pairs, fmt.Sprintf("%s: `%s`", k, v))
	}
	sort.Strings(pairs)
	lines = append(lines, pairs...)

	if !end.Equal(begin) {
		lines = append(lines, fmt.Sprintf("%s .. %s", begin.UTC().Format(time.RFC3339Nano), end.UTC().Format(time.RFC3339Nano)))
	}
	if len(se.tags) > 0 {
		lines = append(lines, strings.Join(se.tags, ", "))
	}
	return strings.Join(lines, "\n")
}

func (se *SlackEventer) Now(name string, attributes map[string]string) error {
	return se.At(name, attributes, time.Now())
}

func (se *SlackEventer) At(name string, attributes map[string]string, when time.Time) error {
	return se.Interval(name, attributes, when, when)
}

func (se *SlackEventer) Interval(name string, attributes map[string]string, begin, end time.Time) error {

	body, err := json.Marshal(slackMessage{Text: se.text(name, attributes, begin, end)})
	if err != nil {
		return err
	}
	if payload, ok := attributes["payload"]; ok {
		body = []byte(payload)
	}

	req, err := http.NewRequestWithContext(se.ctx, http.MethodPost, se.options.WebHook, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := se.client.Do(req)
	if err != nil {
		se.logger.Error("slack post: %v", err)
		return err
	}
	defer resp.Body.Close()

	rBody, err := io.ReadAll(resp.Body)
	if err != nil {
		se.logger.Error("slack post response: %v", err)
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error %d: returns %s", resp.StatusCode, rBody)
	}
	se.logger.Debug(string(rBody))
	return nil
}

func (se *SlackEventer) Stop() {
	se.client.CloseIdleConnections()
	se.logger.Info("Slack eventer stopped.")
}

func NewSlackEventer(options SlackOptions, logger common.Logger, stdout *Stdout) *SlackEventer {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.WebHook) {
		stdout.Debug("Slack eventer is disabled.")
		return nil
	}

	logger.Info("Slack eventer is up...")

	return &SlackEventer{
		options: options,
		logger:  logger,
		tags:    common.MapToArray(common.GetKeyValues(options.Tags)),
		client:  common.MakeHttpClient(options.Timeout),
		ctx:     context.Background(),
	}
}
