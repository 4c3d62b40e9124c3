package utils

import "sync"

var gdalMu sync.Mutex

// ExecuteWithMutex serializes calls into GDAL, which is not safe for concurrent dataset access.
func ExecuteWithMutex(fn func()) {
	gdalMu.Lock()
	defer gdalMu.Unlock()
	fn()
}
