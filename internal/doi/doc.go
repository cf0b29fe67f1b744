// Package doi resolves "DOI/filename" targets against a DOI resolver and the
// Zenodo metadata API. Resolution goes through three memoised levels (Link
// headers per resolution URL, metadata per DOI, file list per DOI), each backed
// by a cache.Memo so concurrent requests for the same DOI share one upstream
// round trip. Errors carry one of ErrResolution, ErrMetadata or ErrNotFound and
// are never cached.
package doi
