// Package models defines the domain types shared by the sync pipeline.
//
// The package contains two categories of types:
//
// 1. Pipeline values: transient data flowing through a single run
//   - [Track] : one liked song from the streaming library (artist, title, source id)
//   - [LibrarySnapshot] : the ordered, cached list of tracks
//   - [CatalogEntry] : one BeatSaver search result candidate
//   - [MatchDecision] : accept or reject outcome of matching a track against its candidates
//
// 2. History records: persisted by the repositories package
//   - [Run] : one sync invocation with aggregate counters
//   - [Outcome] : what happened to one track within a run
//   - [RunReport] : a run together with its outcomes, used for exports
//
// Records implement [Model], which exposes identity and validation.
package models
