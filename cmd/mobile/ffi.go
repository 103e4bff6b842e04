//go:build cgo

package main

/*
#cgo CFLAGS: -Wall -Wextra
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"unsafe"
)

// result converts a bridge result to a C string, or NULL on failure.
// Non-NULL strings must be released with FreeString.
func result(out string, err error) *C.char {
	setLastError(err)
	if err != nil {
		return nil
	}
	return C.CString(out)
}

//export Init
// Init opens the core in dataDir. configPath may be empty.
// Returns 0 on success, -1 on failure (see GetLastError).
func Init(dataDir, configPath *C.char) C.int {
	err := initCore(C.GoString(dataDir), C.GoString(configPath))
	setLastError(err)
	if err != nil {
		return -1
	}
	return 0
}

//export Cleanup
// Cleanup stops background work and closes the database.
func Cleanup() {
	setLastError(cleanupCore())
}

//export GetLastError
// GetLastError returns the last error as {"code","message"} JSON, or "".
// Returns a C string that must be freed by the caller.
func GetLastError() *C.char {
	return C.CString(getLastError())
}

// =====================================================
// Sync Operations
// =====================================================

//export SyncPending
// SyncPending replays the offline queue and waits for the result.
func SyncPending() *C.char {
	return result(syncPending())
}

//export SyncStatus
func SyncStatus() *C.char {
	return result(syncStatus())
}

//export SetOnline
// SetOnline reports connectivity. Coming back online syncs pending actions.
func SetOnline(online C.int) *C.char {
	return result(setOnline(online != 0))
}

//export EnqueueAction
// EnqueueAction queues {"type","endpoint","data","table"} for replay.
func EnqueueAction(action *C.char) *C.char {
	return result(enqueueAction(C.GoString(action)))
}

//export PendingActions
func PendingActions() *C.char {
	return result(pendingActions())
}

//export OfflineStats
func OfflineStats() *C.char {
	return result(offlineStats())
}

//export DownloadOfflineData
func DownloadOfflineData() *C.char {
	return result(downloadOfflineData())
}

//export ClearOfflineData
func ClearOfflineData() *C.char {
	return result(clearOfflineData())
}

// =====================================================
// Itinerary Operations
// =====================================================

//export ItineraryCreate
// ItineraryCreate stores an itinerary item locally and queues its creation.
func ItineraryCreate(item *C.char) *C.char {
	return result(itineraryCreate(C.GoString(item)))
}

//export ItineraryUpdate
func ItineraryUpdate(id, update *C.char) *C.char {
	return result(itineraryUpdate(C.GoString(id), C.GoString(update)))
}

//export ItineraryDelete
func ItineraryDelete(id *C.char) *C.char {
	return result(itineraryDelete(C.GoString(id)))
}

// =====================================================
// Storage Operations
// =====================================================

//export StorageGet
// StorageGet returns the JSON-encoded value of key, or "null" when absent.
func StorageGet(key *C.char) *C.char {
	return result(storageGet(C.GoString(key)))
}

//export StorageSet
func StorageSet(key, value *C.char) *C.char {
	return result(storageSet(C.GoString(key), C.GoString(value)))
}

// =====================================================
// Session Operations
// =====================================================

//export Login
// Login signs in with {"email","password"} and returns the user.
func Login(credentials *C.char) *C.char {
	return result(authLogin(C.GoString(credentials)))
}

//export Logout
func Logout() *C.char {
	return result(authLogout())
}

//export RefreshSession
// RefreshSession renews the stored session through Supabase.
func RefreshSession() *C.char {
	return result(authRefresh())
}

// =====================================================
// Weather Operations
// =====================================================

//export CurrentWeather
// CurrentWeather returns the weather for {"lat","lon","lang"}, cached for
// the configured window.
func CurrentWeather(request *C.char) *C.char {
	return result(currentWeather(C.GoString(request)))
}

// =====================================================
// Booking Operations
// =====================================================

//export BookingState
func BookingState() *C.char {
	return result(bookingState())
}

//export BookingDispatch
// BookingDispatch applies {"op","step","guestId","payload"} to the wizard.
func BookingDispatch(command *C.char) *C.char {
	return result(bookingDispatch(C.GoString(command)))
}

// =====================================================
// Memory Management Helpers
// =====================================================

//export FreeString
// FreeString frees a string allocated by Go.
func FreeString(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}
