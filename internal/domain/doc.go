// Package domain models NotiZAR community incident reports and the alerts
// derived from them.
//
// # Reports
//
// A report is submitted by a community member through the public form. The
// required fields are the report type, a free-text description, and a
// location. Reporters may stay anonymous; an anonymous report may still carry
// a name or email in storage (older forms collected them unconditionally), so
// every display surface goes through [Report.Redacted] before rendering.
// Unauthenticated surfaces use [Report.Public], which also drops the email
// and ID number of identified reporters.
//
// Location is free text. Browser geolocation pre-fills it as
//
//	"Lat: -25.7479, Lng: 28.2293"
//
// which [ParseCoordinates] recognises, along with the legacy "Nearby (lat, lng)"
// form and a bare "lat, lng" pair. Anything else is treated as a place name.
//
// # Lifecycle
//
// Status only moves forward:
//
//	submitted -> investigating -> resolved
//	submitted -> resolved
//
// Requesting the current status again is a successful no-op so that repeated
// clicks in the admin UI are harmless. See [ValidateTransition].
//
// # Alerts
//
// [GenerateAlert] turns a freshly inserted report into the structured payload
// the admin surface consumes. Priority is keyword driven:
//
//	emergency: emergency, urgent, danger, critical, accident, fire, medical
//	high:      complaint, issue, problem, broken, not working
//	normal:    everything else
//
// Keywords are matched case-insensitively against the description first, then
// the report type. The urgency score starts at 50, adds a per-type offset
// (emergency +40, complaint +30, incident +25, feedback -10, suggestion -15),
// adds 10 for descriptions longer than 200 characters, and is clamped to
// [0, 100].
package domain
