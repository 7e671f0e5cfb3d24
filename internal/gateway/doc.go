// Package gateway is the HTTP surface of mailgate. It adapts browser
// requests onto the flow.Controller: the two OAuth redirect endpoints,
// the session-scoped account API, and the small status pages. Every
// boundary error becomes structured JSON or a redirect; nothing from
// the flow or storage layers escapes as an unhandled fault.
package gateway
