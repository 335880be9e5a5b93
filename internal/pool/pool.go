package pool

import (
	"icering/internal/deque"
)

// Task is a unit of work a worker executes.
type Task func()

// Pool is a fixed-size worker pool. Each worker owns one Chase-Lev deque;
// Execute ships tasks round-robin, and an idle worker steals from its
// peers once its own deque runs dry.
type Pool struct {
	deques     []*deque.Deque
	numTasks   *semaphore
	running    *semaphore
	nworkers   int
	nextWorker int
}

// New starts a pool of nworkers goroutines, each pulling from its own
// deque and stealing from the others when idle.
func New(nworkers int) *Pool {
	if nworkers <= 0 {
		nworkers = 1
	}
	p := &Pool{
		deques:   make([]*deque.Deque, nworkers),
		numTasks: newSemaphore(0),
		running:  newSemaphore(0),
		nworkers: nworkers,
	}
	for i := range p.deques {
		p.deques[i] = deque.New()
	}
	for id := 0; id < nworkers; id++ {
		go p.run(id)
	}
	return p
}

func (p *Pool) nextTask(id int) (Task, bool) {
	p.numTasks.acquire()

	if v, ok := p.deques[id].Pop(); ok {
		return v.(Task), true
	}

peers:
	for i := 1; i < p.nworkers; i++ {
		stealFrom := (id + i) % p.nworkers
		for {
			status, v := p.deques[stealFrom].Steal()
			switch status {
			case deque.Empty:
				continue peers
			case deque.Abort:
				continue
			case deque.Got:
				return v.(Task), true
			}
		}
	}
	return nil, false
}

func (p *Pool) run(id int) {
	for {
		task, ok := p.nextTask(id)
		if !ok {
			return
		}
		p.running.release()
		task()
		p.running.acquire()
	}
}

// Execute ships f to the next worker in round-robin order.
func (p *Pool) Execute(f Task) {
	id := p.nextWorker
	p.nextWorker = (id + 1) % p.nworkers
	p.deques[id].Push(f)
	p.numTasks.release()
}

// Join blocks until every queued task has been claimed and every claimed
// task has finished running.
func (p *Pool) Join() {
	p.numTasks.waitTillEmpty()
	p.running.waitTillEmpty()
}

// Kill releases each worker once with no task, letting its nextTask call
// return cleanly instead of executing a task. Call Join first so Kill
// does not race a release against an in-flight task count.
func (p *Pool) Kill() {
	for i := 0; i < p.nworkers; i++ {
		p.numTasks.release()
	}
}
