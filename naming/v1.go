package naming

import "strings"

type cacheV1 struct{}

func (cacheV1) Operation(cacheSystem string) string {
	return cacheSystem + ".command"
}

func (cacheV1) Service(cacheSystem string) string {
	return ""
}

type clientV1 struct{}

func (clientV1) OperationForProtocol(protocol string) string {
	return protocol + ".client.request"
}

func (clientV1) OperationForComponent(component string) string {
	return "http.client.request"
}

type cloudV1 struct{}

func (cloudV1) OperationForRequest(provider, cloudService, request string) string {
	return strings.ToLower(provider) + "." + strings.ToLower(cloudService) + ".request"
}

func (cloudV1) ServiceForRequest(provider, cloudService string) string {
	return ""
}

func (cloudV1) OperationForFaas(provider string) string {
	return strings.ToLower(provider) + ".lambda.invoke"
}

type databaseV1 struct{}

func (databaseV1) Operation(databaseType string) string {
	return databaseType + ".query"
}

func (databaseV1) Service(databaseType string) string {
	return ""
}

type messagingV1 struct{}

func (messagingV1) OutboundOperation(system string) string {
	return system + ".send"
}

func (messagingV1) OutboundService(system string) string {
	return ""
}

func (messagingV1) InboundOperation(system string) string {
	return system + ".process"
}

func (messagingV1) InboundService(system string) string {
	return ""
}

type serverV1 struct{}

func (serverV1) OperationForProtocol(protocol string) string {
	return protocol + ".server.request"
}

func (serverV1) OperationForComponent(component string) string {
	return "http.server.request"
}

type peerServiceV1 struct{}

var precursorsV1 = []string{
	"db.instance",
	"messaging.destination",
	"rpc.service",
	"bucketname",
	"tablename",
	"queuename",
	"topicname",
	"streamname",
	"peer.hostname",
	"out.host",
}

func (peerServiceV1) SupportsDefaultPeerService() bool {
	return true
}

func (peerServiceV1) Precursors() []string {
	return precursorsV1
}
