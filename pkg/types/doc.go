// Package types defines the JSON wire types exchanged between the agent and
// the dashboard. These are the canonical payload shapes for registration,
// periodic metrics delivery and the high-frequency live performance feed,
// shared by the delivery client, the collectors and the test dashboards.
package types
