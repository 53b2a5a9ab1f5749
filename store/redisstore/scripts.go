package redisstore

import "github.com/redis/go-redis/v9"

// saveScript overwrites an active task if the caller still holds its lease.
// Returns 0 when the task is gone, -1 when the owner changed, 1 on success.
var saveScript = redis.NewScript(
	// language=Lua
	`
	if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
	local cur = redis.call('HGET', KEYS[1], 'owner') or ''
	if cur ~= ARGV[2] then return -1 end
	redis.call('HSET', KEYS[1], unpack(ARGV, 4))
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
	return 1
	`,
)

// claimScript picks the lowest (priority, id) among the candidate task keys
// KEYS[2..] whose lease in KEYS[1] still expires at or before ARGV[1], and
// leases it to ARGV[3] until ARGV[2]. ARGV[4..] are the candidate ids.
// Candidates without a task hash are dropped from KEYS[1].
var claimScript = redis.NewScript(
	// language=Lua
	`
	local now = tonumber(ARGV[1])
	local best, bestKey, bestPri
	for i = 2, #KEYS do
		local id = ARGV[i + 2]
		local score = redis.call('ZSCORE', KEYS[1], id)
		if score and tonumber(score) <= now then
			local p = redis.call('HGET', KEYS[i], 'priority')
			if not p then
				redis.call('ZREM', KEYS[1], id)
			else
				p = tonumber(p)
				if not best or p < bestPri or (p == bestPri and tonumber(id) < tonumber(best)) then
					best, bestKey, bestPri = id, KEYS[i], p
				end
			end
		end
	end
	if not best then return false end
	redis.call('HSET', bestKey, 'owner', ARGV[3], 'expires', ARGV[2])
	redis.call('ZADD', KEYS[1], ARGV[2], best)
	return best
	`,
)

// archiveScript moves an active task into the archive if the caller still holds its lease.
// Returns 0 when the task is gone, -1 when the owner changed, 1 on success.
var archiveScript = redis.NewScript(
	// language=Lua
	`
	if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
	local cur = redis.call('HGET', KEYS[1], 'owner') or ''
	if cur ~= ARGV[2] then return -1 end
	redis.call('DEL', KEYS[1])
	redis.call('ZREM', KEYS[2], ARGV[1])
	redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
	redis.call('ZADD', KEYS[4], ARGV[4], ARGV[1])
	return 1
	`,
)
