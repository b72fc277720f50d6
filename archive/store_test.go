// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package archive

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/whatsarchive/types"
)

var (
	jakarta = time.FixedZone("WIB", 7*60*60)
	contact = types.ContactID("6281234567890@s.whatsapp.net")
	// 2026-10-16 23:30:15 UTC is already the 17th in Jakarta.
	testTime = time.Date(2026, 10, 16, 23, 30, 15, 0, time.UTC)
)

func newTestStore(t *testing.T) (*Store, string) {
	root := t.TempDir()
	return NewStore(filepath.Join(root, "logs"), filepath.Join(root, "blocked_contacts"), WithLocation(jakarta)), root
}

func TestStoreLayout(t *testing.T) {
	store, root := newTestStore(t)
	assert.Equal(t, filepath.Join(root, "logs", "6281234567890_s_whatsapp_net", "2026-10-17"), store.DayDir(contact, testTime))
	assert.Equal(t, "17/10/2026, 06.30.15", store.Timestamp(testTime))
}

func TestAppendMessageAndCall(t *testing.T) {
	store, root := newTestStore(t)
	require.NoError(t, store.AppendMessage(contact, testTime, "first\n"))
	require.NoError(t, store.AppendMessage(contact, testTime, "second\n"))
	require.NoError(t, store.AppendCall(contact, testTime, "call\n"))

	dayDir := filepath.Join(root, "logs", "6281234567890_s_whatsapp_net", "2026-10-17")
	data, err := os.ReadFile(filepath.Join(dayDir, MessagesFile))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
	data, err = os.ReadFile(filepath.Join(dayDir, CallsFile))
	require.NoError(t, err)
	assert.Equal(t, "call\n", string(data))
}

func TestAppendBlockLogs(t *testing.T) {
	store, root := newTestStore(t)
	require.NoError(t, store.AppendBlockAction("action\n"))
	require.NoError(t, store.AppendBlockListing("listing\n"))
	require.NoError(t, store.AppendBlockListing("listing\n"))

	data, err := os.ReadFile(filepath.Join(root, "blocked_contacts", BlockActionsFile))
	require.NoError(t, err)
	assert.Equal(t, "action\n", string(data))
	data, err = os.ReadFile(filepath.Join(root, "blocked_contacts", BlockListingFile))
	require.NoError(t, err)
	assert.Equal(t, "listing\nlisting\n", string(data))
}

func TestWriteMedia(t *testing.T) {
	store, _ := newTestStore(t)
	rel, err := store.WriteMedia(contact, testTime, "../../photo.jpg", []byte{0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, "media/063015_photo.jpg", rel)

	data, err := os.ReadFile(filepath.Join(store.DayDir(contact, testTime), filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8}, data)

	entries, err := os.ReadDir(filepath.Join(store.DayDir(contact, testTime), MediaDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteMediaNameCollision(t *testing.T) {
	store, _ := newTestStore(t)
	payloads := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	var paths []string
	for _, data := range payloads {
		rel, err := store.WriteMedia(contact, testTime, "photo.jpg", data)
		require.NoError(t, err)
		paths = append(paths, rel)
	}
	assert.Equal(t, []string{"media/063015_photo.jpg", "media/063015_photo_2.jpg", "media/063015_photo_3.jpg"}, paths)

	for i, rel := range paths {
		data, err := os.ReadFile(filepath.Join(store.DayDir(contact, testTime), filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, payloads[i], data)
	}
	entries, err := os.ReadDir(filepath.Join(store.DayDir(contact, testTime), MediaDir))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestConcurrentAppendsDoNotInterleave(t *testing.T) {
	store, _ := newTestStore(t)
	const writers = 20
	entry := "Waktu: x\nDari: y\nUntuk: z\nPesan: hello\n\n---\n\n"
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.AppendMessage(contact, testTime, entry))
		}()
	}
	wg.Wait()
	data, err := os.ReadFile(filepath.Join(store.DayDir(contact, testTime), MessagesFile))
	require.NoError(t, err)
	assert.Len(t, data, writers*len(entry))
}

func TestNothingCreatedBeforeWrite(t *testing.T) {
	store, root := newTestStore(t)
	_ = store.DayDir(contact, testTime)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, store.CheckWritable())
	entries, err = os.ReadDir(filepath.Join(root, "logs"))
	require.NoError(t, err)
	assert.Empty(t, entries, "write check files must be cleaned up")
}
