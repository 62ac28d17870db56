/*
Package clusterrpc implements the cluster-wide reload notification that the
Catalog Manager publishes after every committed make_changes batch:
{method_api:"cluster_api", method_name:"load_system_store", target:""}.

LocalBroker is an in-process Redirector for tests and single-process
deployments, adapted from an in-memory pub/sub broker. GRPCRedirector
broadcasts the same message to a fixed set of peer addresses over a
hand-registered gRPC service using structpb.Struct as the wire type, so no
protoc-generated stubs are required.

Cluster notifications are best-effort: a dropped message is self-healed by
the Catalog Manager's age-based refresh policy, so Broadcast logs per-peer
failures rather than returning them.
*/
package clusterrpc
