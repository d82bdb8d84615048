// Package sse adapts a session's event sequence into Server-Sent Event frames.
//
// Every event becomes one data frame:
//
//	data: {"event":"data","data":{"id":"1","msg":{"type":"agent_message","message":"Hi"}}}
//
// A failure to fetch the next event becomes one error frame, after which the
// stream ends:
//
//	event: error
//	data: {"event":"error","data":{"error":"session closed"}}
//
// The adapter pulls one event per call and never reads ahead.
package sse
