package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/devopsext/tracecore/common"
	utils "github.com/devopsext/utils"
)

type GrafanaAnnotationResponse struct {
	Message string `json:"message"`
	ID      int    `json:"id"`
}

type GrafanaAnnotation struct {
	Time    int64    `json:"time"`
	TimeEnd int64    `json:"timeEnd"`
	Tags    []string `json:"tags"`
	Text    string   `json:"text"`
}

type GrafanaOptions struct {
	URL     string
	ApiKey  string
	Tags    string
	Timeout int
}

type GrafanaEventerOptions struct {
	GrafanaOptions
	Endpoint string
}

// GrafanaEventer turns events into dashboard annotations.
type GrafanaEventer struct {
	options GrafanaEventerOptions
	logger  common.Logger
	tags    []string
	client  *http.Client
	ctx     context.Context
}

func (ge *GrafanaEventer) httpDoRequest(method, query string, params url.Values, buf io.Reader) ([]byte, int, error) {

	u, err := url.Parse(ge.options.URL)
	if err != nil {
		return nil, 0, err
	}
	u.Path = path.Join(u.Path, query)
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequestWithContext(ge.ctx, method, u.String(), buf)
	if err != nil {
		return nil, 0, err
	}
	if !utils.IsEmpty(ge.options.ApiKey) {
		if strings.Contains(ge.options.ApiKey, ":") {
			kv := strings.SplitN(ge.options.ApiKey, ":", 2)
			req.SetBasicAuth(kv[0], kv[1])
		} else {
			req.Header.Set("Authorization", "Bearer "+ge.options.ApiKey)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := ge.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, err
}

func (ge *GrafanaEventer) httpPost(query string, params url.Values, body []byte) ([]byte, int, error) {
	return ge.httpDoRequest(http.MethodPost, query, params, bytes.NewBuffer(body))
}

func (ge *GrafanaEventer) createAnnotation(a GrafanaAnnotation) (*GrafanaAnnotationResponse, error) {

	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}

	raw, code, err := ge.httpPost(ge.options.Endpoint, nil, b)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, fmt.Errorf("HTTP error %d: returns %s", code, raw)
	}

	var res GrafanaAnnotationResponse
	err = json.Unmarshal(raw, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (ge *GrafanaEventer) annotationTags(attributes map[string]string) []string {

	tags := append([]string{}, ge.tags...)
	for k, v := range attributes {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	sort.Strings(tags)
	return tags
}

func (ge *GrafanaEventer) Now(name string, attributes map[string]string) error {
	return ge.At(name, attributes, time.Now())
}

func (ge *GrafanaEventer) At(name string, attributes map[string]string, when time.Time) error {
	return ge.Interval(name, attributes, when, when)
}

func (ge *GrafanaEventer) Interval(name string, attributes map[string]string, begin, end time.Time) error {

	a := GrafanaAnnotation{
		Time:    begin.UTC().UnixMilli(),
		TimeEnd: end.UTC().UnixMilli(),
		Tags:    ge.annotationTags(attributes),
		Text:    name,
	}

	ar, err := ge.createAnnotation(a)
	if err != nil {
		ge.logger.Error(err)
		return err
	}
	ge.logger.Debug("Annotation %d. %s", ar.ID, ar.Message)
	return nil
}

func (ge *GrafanaEventer) Stop() {
	ge.client.CloseIdleConnections()
}

func NewGrafanaEventer(options GrafanaEventerOptions, logger common.Logger, stdout *Stdout) *GrafanaEventer {

	if logger == nil {
		logger = stdout
	}

	if utils.IsEmpty(options.URL) {
		stdout.Debug("Grafana eventer is disabled.")
		return nil
	}

	if utils.IsEmpty(options.Endpoint) {
		options.Endpoint = "/api/annotations"
	}

	logger.Info("Grafana eventer is up...")

	return &GrafanaEventer{
		options: options,
		logger:  logger,
		tags:    common.MapToArray(common.GetKeyValues(options.Tags)),
		client:  common.MakeHttpClient(options.Timeout),
		ctx:     context.Background(),
	}
}
