//go:build !darwin

package main

func checkPlatform() error { return nil }
