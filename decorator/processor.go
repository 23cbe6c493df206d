package decorator

import (
	"strings"

	"github.com/devopsext/tracecore/naming"
)

const (
	SpanKindTag    = "span.kind"
	BaseServiceTag = "_dd.base_service"
)

// PostProcessor runs once on the tags of a finishing span.
type PostProcessor interface {
	ProcessTags(tags map[string]interface{}, ctx Context) map[string]interface{}
}

// PeerServiceCalculator fills peer.service of client and producer spans.
type PeerServiceCalculator struct {
	schema  *naming.Schema
	mapping map[string]string
}

func (p *PeerServiceCalculator) ProcessTags(tags map[string]interface{}, ctx Context) map[string]interface{} {

	kind := toString(tags[SpanKindTag])
	if kind != "client" && kind != "producer" {
		return tags
	}

	peer := toString(tags[PeerServiceTag])
	if peer == "" {
		if !p.schema.PeerService().SupportsDefaultPeerService() {
			return tags
		}
		for _, precursor := range p.schema.PeerService().Precursors() {
			if v := toString(tags[precursor]); v != "" {
				peer = v
				tags[PeerServiceTag] = v
				tags[PeerServiceSourceTag] = precursor
				break
			}
		}
		if peer == "" {
			return tags
		}
	}

	// a peer set through the decorator is already mapped
	if _, ok := tags[PeerServiceRemappedTag]; ok || toString(tags[PeerServiceSourceTag]) == PeerServiceTag {
		return tags
	}
	if m := mapped(p.mapping, peer); m != peer {
		tags[PeerServiceRemappedTag] = peer
		tags[PeerServiceTag] = m
	}
	return tags
}

func NewPeerServiceCalculator(schema *naming.Schema, mapping map[string]string) *PeerServiceCalculator {

	if schema == nil {
		schema = naming.New(naming.V0, "")
	}
	return &PeerServiceCalculator{schema: schema, mapping: mapping}
}

// BaseServiceProcessor records the tracer service on spans renamed to another service.
type BaseServiceProcessor struct {
	service string
}

func (p *BaseServiceProcessor) ProcessTags(tags map[string]interface{}, ctx Context) map[string]interface{} {

	if p.service == "" || strings.EqualFold(ctx.ServiceName(), p.service) {
		return tags
	}
	tags[BaseServiceTag] = p.service
	return tags
}

func NewBaseServiceProcessor(service string) *BaseServiceProcessor {
	return &BaseServiceProcessor{service: service}
}
