package naming

import "strings"

type cacheV0 struct{}

func (cacheV0) Operation(cacheSystem string) string {

	switch cacheSystem {
	case "ignite", "hazelcast":
		return cacheSystem + ".cache"
	default:
		return cacheSystem + ".query"
	}
}

func (cacheV0) Service(cacheSystem string) string {
	return cacheSystem
}

type clientV0 struct{}

func (clientV0) OperationForProtocol(protocol string) string {

	switch protocol {
	case "grpc":
		return "grpc.client"
	default:
		return protocol + ".request"
	}
}

func (clientV0) OperationForComponent(component string) string {
	return component + ".request"
}

type cloudV0 struct{}

func (cloudV0) OperationForRequest(provider, cloudService, request string) string {
	return strings.ToLower(provider) + ".http"
}

func (cloudV0) ServiceForRequest(provider, cloudService string) string {
	return strings.ToLower(provider) + "-sdk"
}

func (cloudV0) OperationForFaas(provider string) string {
	return "dd-tracer-serverless-span"
}

type databaseV0 struct{}

func (databaseV0) Operation(databaseType string) string {
	return databaseType + ".query"
}

func (databaseV0) Service(databaseType string) string {
	return databaseType
}

type messagingV0 struct {
	service string
}

func (messagingV0) OutboundOperation(system string) string {
	return system + ".produce"
}

func (messagingV0) OutboundService(system string) string {
	return system
}

func (messagingV0) InboundOperation(system string) string {
	return system + ".consume"
}

// InboundService keeps the tracer service except for brokers that always named their consumers.
func (m messagingV0) InboundService(system string) string {

	switch system {
	case "kafka", "rabbitmq", "jms":
		return system
	default:
		return m.service
	}
}

type serverV0 struct{}

func (serverV0) OperationForProtocol(protocol string) string {

	switch protocol {
	case "grpc":
		return "grpc.server"
	default:
		return protocol + ".request"
	}
}

func (serverV0) OperationForComponent(component string) string {
	return component + ".request"
}

type peerServiceV0 struct{}

func (peerServiceV0) SupportsDefaultPeerService() bool {
	return false
}

func (peerServiceV0) Precursors() []string {
	return nil
}
