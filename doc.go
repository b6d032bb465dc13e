// Package mogilefs implements the core of a MogileFS-compatible tracker:
// the line protocol, the typed operations, the backend capability
// interfaces and the dispatcher that joins them.
//
// Wire format (one request, one response, CRLF terminated):
//
//	request:  <op> <form-encoded args>
//	success:  OK <form-encoded args>
//	failure:  ERR <kind> <form-encoded description>
//
// Components:
//   - Request / Response: one type per operation (create_domain,
//     create_open, get_paths, list_keys, ...). ParseRequest decodes a line,
//     Line renders one.
//   - TrackerBackend / StorageBackend: what a backend provides. See
//     backend/mem and backend/redis.
//   - Tracker: decodes a line, dispatches it and encodes the answer. It
//     never panics on input; every failure becomes an ERR line.
//   - Error: the protocol error, carrying one of the Kind tokens.
//
// Sockets live in package server (tracker side) and package client.
// Stored bytes are served over HTTP by package storage at the URL shape
// returned by StorageURL:
//
//	<scheme>://<host>/<base path>/d/<domain>/k/<key>
package mogilefs
