/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads service settings from YAML/JSON files and environment variables
// and distributes them over per-component configuration objects.
package config

import "reflect"

// Config is implemented by every component configuration that Loader fills.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider lets a Config scope its keys under a prefix (e.g. "queue").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

func providerFor(obj interface{}, dp DataProvider) DataProvider {
	if kp, ok := obj.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}

// nestedConfigs returns non-nil exported fields of the struct pointed to by obj that implement Config.
func nestedConfigs(obj interface{}) []Config {
	el := reflect.ValueOf(obj).Elem()
	var res []Config
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		fv := el.Field(i)
		if fv.Kind() == reflect.Ptr && fv.IsNil() {
			continue
		}
		if c, ok := fv.Interface().(Config); ok {
			res = append(res, c)
		}
	}
	return res
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults for every nested Config field of obj.
// It's intended to be used by aggregate application configs.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	for _, c := range nestedConfigs(obj) {
		c.SetProviderDefaults(providerFor(c, dp))
	}
}

// CallSetForFields calls Set for every nested Config field of obj and stops on the first error.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	for _, c := range nestedConfigs(obj) {
		if err := c.Set(providerFor(c, dp)); err != nil {
			return err
		}
	}
	return nil
}
