// Package cache persists discovered handle profiles so a
// reconnecting client can skip GATT discovery.
package cache

import (
	"fmt"
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"

	ble "github.com/antonvh/btbricks"
)

type handleCache struct {
	filename string
	lock     sync.RWMutex
}

// New returns a file-backed handle cache. The file is created on the
// first Store.
func New(filename string) ble.HandleCache {
	return &handleCache{filename: filename}
}

func (hc *handleCache) Store(mac ble.Addr, profile ble.HandleProfile, replace bool) error {
	hc.lock.Lock()
	defer hc.lock.Unlock()

	cache, err := hc.loadExisting()
	if err != nil {
		return err
	}

	_, ok := cache[mac.String()]
	if ok && !replace {
		return fmt.Errorf("cache already contains handle profile for %s", mac.String())
	}

	cache[mac.String()] = profile

	return hc.storeCache(cache)
}

func (hc *handleCache) Load(mac ble.Addr) (ble.HandleProfile, error) {
	hc.lock.RLock()
	defer hc.lock.RUnlock()

	cache, err := hc.loadExisting()
	if err != nil {
		return ble.HandleProfile{}, err
	}

	p, ok := cache[mac.String()]
	if !ok {
		return ble.HandleProfile{}, fmt.Errorf("handle profile for %s not found in cache", mac.String())
	}

	return p, nil
}

func (hc *handleCache) Invalidate(mac ble.Addr) error {
	hc.lock.Lock()
	defer hc.lock.Unlock()

	cache, err := hc.loadExisting()
	if err != nil {
		return err
	}

	if _, ok := cache[mac.String()]; !ok {
		return nil
	}
	delete(cache, mac.String())

	return hc.storeCache(cache)
}

func (hc *handleCache) Clear() error {
	hc.lock.Lock()
	defer hc.lock.Unlock()

	err := os.Remove(hc.filename)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (hc *handleCache) loadExisting() (map[string]ble.HandleProfile, error) {
	_, err := os.Stat(hc.filename)
	if os.IsNotExist(err) {
		return map[string]ble.HandleProfile{}, nil
	}

	in, err := ioutil.ReadFile(hc.filename)
	if err != nil {
		return nil, err
	}

	var cache map[string]ble.HandleProfile
	err = jsoniter.Unmarshal(in, &cache)
	if err != nil {
		return nil, err
	}

	return cache, nil
}

func (hc *handleCache) storeCache(cache map[string]ble.HandleProfile) error {
	out, err := jsoniter.Marshal(cache)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(hc.filename, out, 0644)
}
