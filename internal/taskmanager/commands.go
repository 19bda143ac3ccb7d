package taskmanager

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/wpolak/cbotgo/pkg/protocol"
)

// builtinCommands is the set of control-channel verbs ProcessCmd handles
// itself, rather than passing through to Start as a job name.
var builtinCommands = map[string]bool{
	"PS": true, "INFO": true, "MODIFY": true, "PAUSE": true, "RELOAD": true,
	"STATS": true, "KILL": true, "CLEAN": true, "GET": true, "CRON": true,
	"IFTTT": true, "SAVEGAME": true, "MEMSTORE": true, "SENDMAIL": true, "QUIT": true,
}

// ProcessCmd is the full command dispatcher. It mutates and returns op in
// place, setting RespCode/Output/Data. The quit flag tells the connection
// handler to close the control channel after writing the response.
func (m *Manager) ProcessCmd(op *protocol.Operation) (result *protocol.Operation, quit bool) {
	switch op.Cmd {
	case "PS":
		return op.Ok("", m.ListTasks()), false
	case "INFO":
		return m.cmdInfo(op), false
	case "MODIFY":
		return m.cmdModify(op), false
	case "PAUSE":
		return m.cmdPause(op), false
	case "RELOAD":
		return m.cmdReload(op), false
	case "STATS":
		return op.Ok("", m.GetStats()), false
	case "KILL":
		return m.cmdKill(op), false
	case "CLEAN":
		n := m.Clean()
		return op.Ok(strconv.Itoa(n)+" task(s) removed", n), false
	case "GET":
		return m.cmdGet(op), false
	case "CRON":
		return m.cmdCron(op), false
	case "IFTTT":
		return m.cmdIfttt(op), false
	case "SAVEGAME":
		m.bus.Emit(protocol.EventSavegame, nil)
		return op.Ok("savegame scheduled", nil), false
	case "MEMSTORE":
		return m.cmdMemstore(op), false
	case "SENDMAIL":
		return m.cmdSendmail(op), false
	case "QUIT":
		return op.Ok("bye", nil), true
	}

	if _, ok := m.jobs.Get(op.Cmd); ok {
		t := m.Start(op.Clone())
		if t == nil {
			return op.Err("failed to start job"), false
		}
		return op.Ok("", map[string]any{"id": t.ID()}), false
	}

	return op.Err("Unknown command"), false
}

func parseTaskID(op *protocol.Operation) (uint32, bool) {
	if len(op.Args) == 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(op.Args[0], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func (m *Manager) cmdInfo(op *protocol.Operation) *protocol.Operation {
	if id, ok := parseTaskID(op); ok {
		info, err := m.GetInfo(id)
		if err != nil {
			return op.Err(err.Error())
		}
		return op.Ok("", info)
	}
	return op.Ok("", m.GetInfoAll())
}

func (m *Manager) cmdModify(op *protocol.Operation) *protocol.Operation {
	id, ok := parseTaskID(op)
	if !ok {
		return op.Err("MODIFY requires a task id")
	}
	if err := m.ModifyTaskData(id, op.Kwargs); err != nil {
		return op.Err(err.Error())
	}
	return op.Ok("OK", nil)
}

func (m *Manager) cmdPause(op *protocol.Operation) *protocol.Operation {
	id, ok := parseTaskID(op)
	if !ok {
		return op.Err("PAUSE requires a task id")
	}
	status, err := m.PauseTask(id)
	if err != nil {
		return op.Err(err.Error())
	}
	return op.Ok(status, nil)
}

func (m *Manager) cmdReload(op *protocol.Operation) *protocol.Operation {
	if len(op.Args) == 0 {
		return op.Err("RELOAD requires a job name")
	}
	if err := m.Reload(op.Args[0]); err != nil {
		return op.Err(err.Error())
	}
	return op.Ok("OK", nil)
}

func (m *Manager) cmdKill(op *protocol.Operation) *protocol.Operation {
	if len(op.Args) == 0 {
		return op.Err("KILL requires a task id or \"all\"")
	}
	if strings.EqualFold(op.Args[0], "all") {
		m.KillAll()
		return op.Ok("OK", nil)
	}
	id, ok := parseTaskID(op)
	if !ok {
		return op.Err("KILL requires a task id or \"all\"")
	}
	if err := m.Kill(id); err != nil {
		return op.Err(err.Error())
	}
	return op.Ok("OK", nil)
}

func (m *Manager) cmdGet(op *protocol.Operation) *protocol.Operation {
	if len(op.Args) == 0 {
		return op.Err("GET requires a task id")
	}
	id, ok := parseTaskID(op)
	if !ok {
		return op.Err("GET requires a task id")
	}
	n := 0
	if len(op.Args) > 1 {
		if v, err := strconv.Atoi(op.Args[1]); err == nil {
			n = v
		}
	}
	lines, err := m.GetOutput(id, n)
	if err != nil {
		return op.Err(err.Error())
	}
	return op.Ok("", lines)
}

func (m *Manager) cmdCron(op *protocol.Operation) *protocol.Operation {
	if v, ok := op.Kwarg("rm"); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return op.Err("rm requires a numeric index")
		}
		if err := m.RemoveCron(i); err != nil {
			return op.Err(err.Error())
		}
		return op.Ok("OK", nil)
	}
	if v, ok := op.Kwarg("pause"); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return op.Err("pause requires a numeric index")
		}
		if err := m.PauseCron(i); err != nil {
			return op.Err(err.Error())
		}
		return op.Ok("OK", nil)
	}
	if v, ok := op.Kwarg("modify"); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return op.Err("modify requires a numeric index")
		}
		schedule, ok := op.Kwarg("cron")
		if !ok {
			return op.Err("modify requires cron=<schedule>")
		}
		if err := m.ModifyCron(i, schedule); err != nil {
			return op.Err(err.Error())
		}
		return op.Ok("OK", nil)
	}
	entries := formatCronList(m.CronList())
	lines := make([]string, len(entries))
	for i, e := range entries {
		opJSON, _ := json.Marshal(e.Op)
		lines[i] = fmt.Sprintf("%d) %s %s", e.Index, e.Schedule, opJSON)
	}
	return op.Ok(strings.Join(lines, "\n"), entries)
}

func (m *Manager) cmdIfttt(op *protocol.Operation) *protocol.Operation {
	if v, ok := op.Kwarg("rm"); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return op.Err("rm requires a numeric index")
		}
		if err := m.RemoveCondition(i); err != nil {
			return op.Err(err.Error())
		}
		return op.Ok("OK", nil)
	}
	if v, ok := op.Kwarg("pause"); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return op.Err("pause requires a numeric index")
		}
		if err := m.PauseCondition(i); err != nil {
			return op.Err(err.Error())
		}
		return op.Ok("OK", nil)
	}
	return op.Ok("", m.ConditionList())
}

// CronListEntry is the display row CRON (no args) lists: "0) * * * * * {...}".
type CronListEntry struct {
	Index    int                 `json:"index"`
	Schedule string              `json:"cron"`
	IsPaused bool                `json:"is_paused"`
	Op       *protocol.Operation `json:"op"`
}

func formatCronList(entries []CronEntry) []CronListEntry {
	out := make([]CronListEntry, len(entries))
	for i, e := range entries {
		out[i] = CronListEntry{Index: i, Schedule: e.Schedule, IsPaused: e.IsPaused, Op: e.Op}
	}
	return out
}

// cmdMemstore mirrors the original's MEMSTORE/memstore.py semantics: with no
// args it dumps the whole store; "keys" narrows that to the sorted key list;
// "get=<key>" narrows to one value; "raw" never changes which data is
// selected, it only switches the Output string between a Go-syntax dump and
// a plain one, the Go analogue of the original's repr() vs str()/pprint.
func (m *Manager) cmdMemstore(op *protocol.Operation) *protocol.Operation {
	raw := hasFlag(op.Args, "raw")

	if hasFlag(op.Args, "keys") {
		keys := m.store.GetKeys()
		sort.Strings(keys)
		return op.Ok(formatMemstoreOutput(keys, raw), keys)
	}
	if key, ok := op.Kwarg("get"); ok {
		value := m.store.Get(key, nil)
		return op.Ok(formatMemstoreOutput(value, raw), value)
	}

	contents := m.store.ToSavegame()
	return op.Ok(formatMemstoreOutput(contents, raw), contents)
}

func formatMemstoreOutput(v any, raw bool) string {
	if raw {
		return fmt.Sprintf("%#v", v)
	}
	return fmt.Sprintf("%+v", v)
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

func (m *Manager) cmdSendmail(op *protocol.Operation) *protocol.Operation {
	if m.deps.Mail == nil {
		return op.Err("no mailer configured")
	}
	subject, _ := op.Kwarg("subject")
	if subject == "" {
		subject = "cbot notification"
	}
	body, _ := op.Kwarg("body")
	if err := m.deps.Mail.Send(subject, body); err != nil {
		return op.Err(err.Error())
	}
	return op.Ok("OK", nil)
}
