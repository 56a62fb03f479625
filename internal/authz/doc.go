// Package authz holds API users and answers permission checks.
//
// Users live in Pebble under "user/<name>" with a bcrypt password hash and
// a list of permission globs. A request for events of type T needs scope
// "events/T"; publishing needs "publish/T".
package authz
