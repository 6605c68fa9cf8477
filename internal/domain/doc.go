// Package domain models site outage records and the device rosters used to
// enrich them.
//
// # Data Source
//
// Outages and site rosters come from the outages API. The job lists every
// outage the API knows about, keeps those that began at or after a cutoff
// instant, joins them to one site's devices, and posts the result back
// under that site's route.
//
// # Outage Records
//
// An outage is an open-ended JSON object:
//
//	{"id": "002b28fc-283c-47ec-9af2-ea287336dc1b",
//	 "begin": "2022-05-23T12:21:27.377Z",
//	 "end": "2022-11-13T02:16:38.905Z"}
//
// Only "id" (the device identifier) and "begin" (an RFC 3339 instant) are
// interpreted. Every other field is carried through unchanged. Records missing
// either field, or with a begin that does not parse, are rejected at decode
// time rather than coerced.
//
// Outage ids are not unique across records: one device can have many
// outages. Identity is positional.
//
// # Enrichment
//
// Enrichment joins an outage to the device with the same id and merges in
// the device's "name". Nothing else from the device is copied. Outages with
// no matching device are dropped; the outages feed spans every site while a
// roster covers one.
//
//	outages:  [{id:A, begin:t1}, {id:B, begin:t2}]
//	devices:  [{id:A, name:"Battery 1"}]
//	enriched: [{id:A, begin:t1, name:"Battery 1"}]
//
// Enrichment is a stable filter-map: input order is preserved and the
// output is never longer than the input.
//
// # Device Rosters
//
// A site roster lists {id, name} devices. The roster is indexed by id for
// the join. When the API repeats an id the later entry wins and the
// duplicate is reported so the caller can log it.
package domain
