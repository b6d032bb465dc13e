package redis

import "github.com/unkn0wn-root/mogilefs/internal/wire"

// keyspace lays out every Redis key the backend owns under one namespace.
//
//	<ns>:domains                 SET of registered domains
//	<ns>:{<domain>}:keys         ZSET of keys, all score 0, walked by lex range
//	<ns>:{<domain>}:f:<key>      encoded file record
//	<ns>:{<domain>}:c:<key>      raw content
//
// The domain is form-escaped, so it never contains ':' or braces, and it is
// used as a cluster hash tag: all keys of one domain share a slot and a
// single MULTI can touch them.
type keyspace struct {
	ns string
}

func (k keyspace) domains() string { return k.ns + ":domains" }

func (k keyspace) tag(domain string) string {
	return k.ns + ":{" + wire.Escape(domain) + "}"
}

func (k keyspace) index(domain string) string { return k.tag(domain) + ":keys" }

func (k keyspace) record(domain, key string) string { return k.tag(domain) + ":f:" + key }

func (k keyspace) content(domain, key string) string { return k.tag(domain) + ":c:" + key }
