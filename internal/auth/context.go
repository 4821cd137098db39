// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

type contextKey string

const (
	userIDKey     contextKey = "user_id"
	businessIDKey contextKey = "business_id"
	deviceIDKey   contextKey = "device_id"
)

// SetUserID sets the user ID in the context
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID retrieves the user ID from the context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// SetBusinessID sets the business ID in the context
func SetBusinessID(ctx context.Context, businessID string) context.Context {
	return context.WithValue(ctx, businessIDKey, businessID)
}

// GetBusinessID retrieves the business ID from the context
func GetBusinessID(ctx context.Context) (string, bool) {
	businessID, ok := ctx.Value(businessIDKey).(string)
	return businessID, ok
}

// SetDeviceID sets the device ID in the context
func SetDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

// GetDeviceID retrieves the device ID from the context
func GetDeviceID(ctx context.Context) (string, bool) {
	deviceID, ok := ctx.Value(deviceIDKey).(string)
	return deviceID, ok
}

// SetAuthContext sets user, business and device IDs in the context
func SetAuthContext(ctx context.Context, userID, businessID, deviceID string) context.Context {
	ctx = SetUserID(ctx, userID)
	ctx = SetBusinessID(ctx, businessID)
	return SetDeviceID(ctx, deviceID)
}
