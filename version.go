package idpagent

// VERSION is the semver of the idp-agent service, reported by the
// status endpoint and sent as part of the outgoing User-Agent.
const VERSION = "v0.3.0"
