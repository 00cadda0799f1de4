// Package scheduler runs recurring background tasks on a cron loop.
//
// A TaskRunner is created per schedule and registers tasks by id:
//
//	runner := sched.CreateScheduledTaskRunner(scheduler.DefaultSchedule())
//	err := runner.Run(ctx, scheduler.TaskInvocation{
//		ID: "refresh-vault-token",
//		Fn: client.RenewToken,
//	})
//
// A run that is still in progress when its next tick arrives is skipped, and a
// panicking task is recovered and logged.
package scheduler
