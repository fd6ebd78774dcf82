// Package n1x hosts the N1X terminal services.
//
// The room server in app owns multiplayer trust state; the terminal client
// owns per-player progression. Everything shared between them (fragment
// table, trust policy, merge rules, key derivation) lives in leaf packages so
// both sides apply identical rules.
package n1x
