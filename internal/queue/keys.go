package queue

import "fmt"

func jobKey(id string) string             { return fmt.Sprintf("bv:queue:job:%s", id) }
func waitingKey(channel string) string     { return fmt.Sprintf("bv:queue:%s:waiting", channel) }
func activeKey(channel string) string      { return fmt.Sprintf("bv:queue:%s:active", channel) }
func delayedKey(channel string) string     { return fmt.Sprintf("bv:queue:%s:delayed", channel) }
func completedKey(channel string) string   { return fmt.Sprintf("bv:queue:%s:completed", channel) }
func failedKey(channel string) string      { return fmt.Sprintf("bv:queue:%s:failed", channel) }
func repeatableSetKey() string             { return "bv:queue:repeatable:set" }
func repeatableEntryKey(key string) string { return fmt.Sprintf("bv:queue:repeatable:%s", key) }
