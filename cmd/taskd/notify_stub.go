//go:build !linux

package main

import "taskd/pkg/logx"

func notifyReady(logx.Logger)    {}
func notifyStopping(logx.Logger) {}
